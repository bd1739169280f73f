// Package main provides the entry point for the websnatch CLI.
//
// websnatch downloads a single web page and converts it into a PDF
// document using an external rendering engine.
//
// Usage:
//
//	websnatch <url>
//	websnatch serve
//
// See --help for all available options.
package main

// main is the entry point for websnatch.
func main() {
	Execute()
}
