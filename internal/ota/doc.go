// Package ota implements the firmware update check and apply.
//
// The backend reports its firmware version at /pico/fw_version. Any string
// different from the running version is an update; there is no ordering, so
// a server going back to an older version also triggers an install. The
// manifest is either inlined in the version document under "files" or
// fetched from /pico/list_py_files. Relative file URLs are resolved against
// the base URL.
//
// Apply is fail-closed and not transactional: the first failed file aborts
// the run and files written before it are not restored.
package ota
