// Package native binds k4a.Provider to the Azure Kinect Sensor SDK (libk4a) and the Body
// Tracking SDK (libk4abt). It is only compiled with cgo and the k4a build tag; other builds get
// a New that reports the provider as unavailable.
package native
