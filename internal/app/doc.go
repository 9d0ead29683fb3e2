// Package app contains the core application logic. It loads a logging
// configuration document, binds it onto a pipeline and drives that pipeline
// for the command line tool, decoupled from any specific entrypoint.
package app
