// Package config defines the updater settings and provides helpers to load,
// validate and save them in YAML or TOML format.
//
// The Config type lists the update targets, custom Jenkins projects and the
// watch daemon settings. The file format is chosen by the file extension.
package config
