// Package legacycam emulates a modern, asynchronous, multi-request capture
// device on top of a synchronous, capture-one-shot legacy camera driver.
//
// The main components of this package are:
//   - A request queue holding submitted capture bursts (RequestQueue).
//   - A single worker goroutine that consumes bursts and drives the legacy
//     driver through preview and still-capture cycles.
//   - A state machine of valid device states that manages the callbacks for
//     the various operations (cameraDeviceState).
//   - A compositing helper that tees the single intermediate preview buffer
//     out to every configured preview surface (Compositor).
//
// The entry point is NewLegacyCameraDevice, which takes ownership of an open
// driver.Camera and reports all capture activity through a
// CameraDeviceCallbacks sink on a dedicated callback goroutine.
package legacycam
