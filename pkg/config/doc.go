// Package config loads the bridge configuration file.
//
// The file is YAML. Every field is optional; Load starts from Default and
// overlays the file, so a file only names what it changes. Durations use
// Go duration syntax ("10ms", "5s").
//
//	bridge:
//	  name: bench-bridge
//	controller:
//	  address: 192.168.1.20:7420
//	notify:
//	  listen: :7421
//	bulk:
//	  name: wave
//	  path: /var/lib/pb/wave.bin
//	sample:
//	  source: bus
//	  register: 0x20
package config
