// Package discovery locates notification backends on the local network with
// mDNS/DNS-SD.
//
// Backends advertise the service type _tablefeed._tcp. The instance name is
// free-form. TXT records describe how to reach the feed:
//
//   - scheme: ws, wss, redis or rediss (default ws)
//   - path: the feed path for websocket schemes (default /ws)
//   - txtvers: TXT record format version (optional)
//
// Entries seen on several interfaces are aggregated by instance name, so a
// backend is reported once with all of its addresses.
package discovery
