// Package pump reads a child's output stream line by line and turns it into
// protocol units.
//
// Lines that already look like protocol frames (a JSON object with a type
// field) pass through unchanged. Every other non-empty line is wrapped as a
// log message at the pump's level. Undecodable lines are reported as error
// messages and the pump keeps reading until end of stream.
package pump
