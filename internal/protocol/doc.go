// Wire format between the cruxgate CLI and the build daemon.
//
// Each connection carries one exchange. The client writes a single
// newline-terminated JSON envelope naming a command and carrying its payload;
// the daemon answers with one envelope whose command is "ok" or "error".
package protocol
