// Package actuator implements the per-output state machines of the
// controller: pump and light switches, and the two-position valve.
//
// Every actuator is one Actuator value parameterized by Kind and Drive:
//
//	Direct          switch; the line mirrors the requested state
//	Level           selector; mode 2 drives the line high, mode 1 low
//	Latch           selector on two coils; pulse coil n, then release both
//	PulseConfirmed  latching relay with a position sensor; pulse only when
//	                the sensor disagrees, then adopt what the sensor reports
//
// Pulse and settle delays are blocking sleeps on the control loop. They hold
// up command and telemetry processing for their duration, which is why the
// configured values are kept in the low hundreds of milliseconds. Nothing is
// reordered while the loop is blocked; later commands simply wait.
//
// A PulseConfirmed actuator never retries a pulse that failed to move the
// contact. Repeated pulsing of a stuck contactor can burn the coil, so a
// mismatch is logged and the observed position is what gets published.
package actuator
