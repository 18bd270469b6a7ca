// Package source turns external byte streams into pipeline events.
//
// Every transport carries the same newline-delimited JSON envelope:
//
//	{"type":"scan","scan":{...}}
//	{"type":"map","map":{...}}
//	{"type":"tf","tf":{...}}
//
// Lines come from a serial bridge, UDP datagrams, or a pcap capture of
// those datagrams replayed offline.
package source
