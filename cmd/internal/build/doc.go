// Package build loads the application bundle and hot-swaps it in development.
//
// A Build is an immutable, parsed template bundle stamped with the bundle
// file's modification time. Current is the single atomically swapped cell
// holding the active Build. In development the Watcher observes the version
// marker file, reloads through a Loader and swaps Current; the Dispatcher
// reads Current once per request, so in-flight requests finish on the build
// they started with. A failed reload keeps the previous build active.
package build
