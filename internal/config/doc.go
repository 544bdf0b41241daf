// Package config loads the QueryChain runtime configuration: the JSON main
// file selected by QUERYCHAIN_CONFIG and the YAML tool data tables consumed
// by the weather and currency tools. Relative paths are resolved against the
// directory of the main file.
package config
