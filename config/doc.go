// Package config loads the collector configuration.
//
// A configuration file is YAML (JSON is accepted too, as a YAML subset). It
// is processed in four steps:
//
//  1. The document is decoded into a generic map and checked against an
//     embedded JSON Schema, so unknown keys and wrong types are reported
//     with their path before anything else happens.
//  2. It is merged onto the defaults, and each device section onto the
//     device defaults.
//  3. Templates are expanded in output.destination, output.file_prefix,
//     output.dead_letter and logging.file. ${device:KEY} refers to a scalar
//     option of the same device section and ${env:NAME} to an environment
//     variable; $$ is a literal dollar sign. logging.file may use
//     ${device:...} only when there is exactly one device.
//  4. The map is decoded into Config, environment overrides are applied
//     (READPORT_LOG_LEVEL, READPORT_LOG_FILE, READPORT_METRICS_PORT,
//     READPORT_SHUTDOWN_TIMEOUT) and every device is turned into a
//     pipeline.Config, which builds and checks its message schema.
//
// Example:
//
//	devices:
//	  - station: MSU
//	    name: Test1
//	    host: 127.0.0.1
//	    port: 4001
//	    timeout: 30
//	    parser:
//	      regex: '^(?P<level>\S+) RH= *(?P<rh>\S+) %RH T= *(?P<temp>\S+) .C\s*$'
//	      types: {rh: float, temp: float}
//	      group_by: level:int
//	      pack_length: 12000
//	    output:
//	      destination: ./data/
//	      file_prefix: ${device:station}_${device:name}
//
// Durations accept Go syntax ("1m30s") or a plain number of seconds.
package config
