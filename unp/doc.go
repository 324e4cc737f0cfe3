// Package unp implements UNP, a reliability-and-framing layer over UDP
// datagrams: a binary frame format, application-level acknowledgement with
// timed retransmission, fragmentation/reassembly of oversized payloads, a
// request/response correlation mechanism, and dispatch of decoded messages
// into a typed inbox.
//
// A typical client:
//
//	sock := udp.New()
//	engine := unp.NewEngine(sock, unp.WithServerPort(0))
//	if err := engine.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	target := wire.Endpoint{Addr: "192.168.1.10", Port: 9700}
//	resp, err := engine.SendQuery(target, "stat", nil, unp.SendOptions{WantAck: true})
package unp
