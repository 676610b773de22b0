// Package config resolves the settings of a harness run.
//
// Settings come from several layers. From lowest to highest priority they are:
//
//  1. defaults declared in the struct tags of Settings
//  2. a dotenv file (.env)
//  3. the process environment
//  4. run-time parameters, from harness.yaml or the command line
//  5. a pluggable override Source
//
// Run-time parameters use dotted names (wildfly.timeout, jboss.home) that map
// onto environment names (WILDFLY_TIMEOUT, JBOSS_HOME). Parsing is done by
// caarlos0/env over the merged map, and validation by go-playground/validator.
// Invalid settings surface as api.ConfigurationError.
//
// Defaults:
//
//	WILDFLY_TIMEOUT            60 (seconds; Go durations such as 90s also work)
//	WILDFLY_HTTP_PROTOCOL      http
//	WILDFLY_HTTP_HOST          localhost
//	WILDFLY_HTTP_PORT          8080, or 8443 for https
//	WILDFLY_MANAGEMENT_HOST    localhost
//	WILDFLY_MANAGEMENT_PORT    9990
package config
