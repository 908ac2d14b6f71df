// Package backend is a development stand-in for the apartment backend.
//
// It serves the routes the doorbell firmware talks to, keeping all state in
// memory:
//
//	GET  /health
//	POST /doorbell/ring           record a ring, reply with server time
//	POST /doorbell/status         {"open": bool}; a pending open is delivered once
//	POST /doorbell/open           queue an open command (the phone app's call)
//	GET  /pico/fw_version         {"fw_version": "..."}
//	GET  /pico/list_py_files      [{"name": "...", "url": "/pico/get_file?file=..."}]
//	GET  /pico/get_file?file=...  raw file content
//
// The /doorbell routes require "Authorization: Apartment <key>"; the key
// selects the apartment.
package backend
