// Command modvault manages a module archive cache from the shell.
//
// Usage:
//
//	modvault [flags] install -id N -location LOC FILE
//	modvault [flags] list
//	modvault [flags] info -id N
//	modvault [flags] remove -id N
//	modvault [flags] stats
//
// Configuration comes from MODVAULT_* environment variables, optionally
// overlaid by a -config YAML or TOML file.
package main
