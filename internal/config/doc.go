// Package config loads the poolctl configuration file.
//
// The file is YAML, versioned, and every section is optional: missing values
// fall back to the defaults in defaults.go. Validation collects every problem
// rather than stopping at the first so an operator can fix a file in one go.
//
//	version: 1
//	device:
//	  id: esp32-pool-01
//	broker:
//	  host: broker.example.net
//	  port: 8883
//	  username: pool-01
//	  password: secret
//	  trust_anchor: /etc/poolctl/ca.pem
//	actuators:
//	  - name: pump
//	    kind: switch
//	    drive: direct
//	    pins: [26]
//	  - name: valve
//	    kind: selector
//	    drive: pulse
//	    pins: [27, 22]
//	    feedback:
//	      source: /sys/bus/iio/devices/iio:device0/in_voltage0_raw
//	      threshold: 2000
//
// Save writes atomically through a temporary file and rename, so a crash
// mid-write never leaves a truncated file behind.
package config
