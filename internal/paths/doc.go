// Provides platform-appropriate paths for cruxgate.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS and Windows, with "cruxgate" as the subdirectory under each base
// path. Runtime paths hold the daemon socket and PID file; data paths hold
// build outputs when no explicit output directory is given.
package paths
