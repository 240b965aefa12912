// Package dos provides an HTTP client for the local control API of Devialet
// Operating System (DOS) devices.
//
// Every DOS device serves a JSON API under /ipcontrol/v1 on port 80. Requests
// go to any device of a group; group-wide operations (playback, sources) are
// relayed by the device that receives them.
//
// # API Categories
//
//   - Device: the device information document used by discovery
//   - System: volume, night mode and power
//   - Group: sources and the playback state of the current source
//
// # Usage Example
//
//	client := dos.NewClient("192.168.1.20", dos.DefaultPort)
//
//	info, err := client.DeviceInfo(ctx)
//	if err != nil {
//	    log.Fatal(dos.ShortMessage(err))
//	}
//	fmt.Println(info)
//
//	if err := client.SetVolume(ctx, 35); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Handling
//
// All calls return *APIError, categorized by ErrorType. Bodies are checked
// against a schema before decoding: a body that is not JSON is a parse error
// and a JSON body of the wrong shape is a validation error. Use IsRetryable to
// decide whether a call is worth repeating.
package dos
