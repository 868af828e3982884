// Package crawler implements the polite, depth-bounded image crawler. The
// Engine walks same-host links from a start URL, checks every request
// against the host's robots.txt, and hands discovered images to a
// DownloadSink.
package crawler
