// Package config defines the format-agnostic configuration model of a build
// run (which package to build, how to drive its build, which platforms and
// architectures to target, and any extra toolchain rules) along with the
// Loader interface that turns configuration files into that model.
//
// The `config.Model` is the single source of truth for the `app` package.
// Concrete implementations of the Loader, such as for HCL, are provided in
// separate packages.
package config
