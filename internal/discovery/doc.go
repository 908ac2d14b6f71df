// Package discovery finds doorbells in pairing mode on the local network.
//
// While in setup a doorbell runs its pairing bridge and advertises it over
// mDNS as "_picobell._tcp" with instance name "Picobell-<last 4 of id>" and
// TXT records:
//
//	id=28cdc10a1b2c   device id (lowercase hex MAC)
//	fw=1.2.0          firmware version
//	path=/pair        websocket path of the bridge
//
// # Usage Example
//
//	devices, err := discovery.ScanForDevices(5 * time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range devices {
//	    fmt.Println(d.Name, d.PairURL())
//	}
package discovery
