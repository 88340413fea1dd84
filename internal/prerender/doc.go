// Package prerender turns a running single-page site into static files: for
// every configured URL it renders the page in a headless browser, reinjects a
// fragment, minifies the document and writes it, with an optional JPEG
// snapshot, under the build directory.
package prerender
