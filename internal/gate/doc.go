// Package gate disables tests whose required server modules are missing or
// too old. Module versions are read from module.xml descriptors and compared
// as semantic versions.
package gate
