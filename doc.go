// Package upcheck actively probes the backend peers of named upstream
// groups and aggregates probe results into a per-peer up/down verdict,
// so request routers can exclude unhealthy backends from selection.
//
// Each peer is checked by sending a fixed request over a new TCP
// connection and incrementally parsing the HTTP response: the status
// line must carry exactly a 200 code, headers are skipped unvalidated,
// and an optional expected body is matched byte for byte. Verdicts are
// flap-damped: a peer must return the configured number of consecutive
// same-direction results before its externally visible down flag flips.
//
// # Quick Start
//
//	cfg := upcheck.NewDefaultFileConfig("node-1")
//	cfg.Upstreams = []upcheck.UpstreamFileConfig{{
//	    Name:    "web",
//	    DelayMs: 1000,
//	    Send:    []string{"GET /health HTTP/1.0", "Connection: close"},
//	    Peers:   []string{"10.0.0.1:80", "10.0.0.2:80"},
//	}}
//
//	mon, err := upcheck.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go mon.Run(ctx)
//
//	// On the request path:
//	if mon.IsDown(peerIndex) {
//	    // skip this backend
//	}
//
// # Multi-worker coordination
//
// Several worker processes can share one set of peers through a common
// status store backed by NATS JetStream KV. A per-peer ownership lease
// decides which worker drives a peer's probes; a worker that goes
// silent for 3x(delay+timeout) is presumed dead and its peers are
// adopted by a survivor. With the default in-memory store there is a
// single worker and the lease reduces to a per-peer mutex.
//
//   - [Registry] holds the immutable peer list and the lock-free
//     IsDown fast path.
//   - [StatusStore] is the shared per-peer status record with the
//     ownership lease; see [MemoryStore] and [NATSStore].
//   - [Worker] schedules probes and ownership attempts per peer.
//   - [Monitor] wires all of it together for one process.
package upcheck
