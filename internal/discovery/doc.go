// Package discovery advertises and finds poolctl controllers over mDNS.
//
// A controller waiting for credentials registers a "_poolctl-pair._tcp"
// service named after its pairing name (for example "Pool-ABCD"); the TXT
// records carry the device id and the WebSocket path of the pairing
// endpoint. While the captive portal is up it also registers "_http._tcp" so
// phones on the hotspot can find the form.
//
// # Usage Example
//
//	// Find controllers waiting to be paired
//	devices, err := discovery.ScanForDevices(5 * time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range devices {
//	    fmt.Println(d.Name, d.PairingURL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
