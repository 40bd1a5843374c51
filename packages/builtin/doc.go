// Package builtin provides the dynamic values available as {{$name}} tokens
// in request files.
//
// Available functions:
//   - $uuid, $guid: random UUID v4
//   - $timestamp, $timestampMs, $isoTimestamp: current time
//   - $datetime [iso8601|rfc1123|date|layout]: formatted current time
//   - $randomInt min max: random integer in [min, max]
//   - $randomString [length], $randomEmail
//   - $processEnv NAME: value of an OS environment variable
//   - $base64, $base64Decode, $md5, $sha256, $urlEncode
//
// Arguments may be given space separated ($randomInt 1 10) or in call form
// ($randomInt(1, 10)).
package builtin
