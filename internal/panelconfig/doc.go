// Package panelconfig defines the configuration model shown by the panel and
// the contract of the Configuration Service that owns it.
//
// # Model
//
// A Snapshot carries three parts:
//   - EntityTypeFlags: the dynamic-update flag per entity type
//   - DeviceOverrides: manual per-device overrides keyed by device id
//   - Devices: the read-only inventory, in service order
//
// plus the name of the active profile (default or custom). A device's
// effective state is its override when one exists, otherwise its own
// DynamicByDefault value.
//
// # Service
//
// Service is implemented three times:
//   - Client: HTTP, with retry and exponential backoff for transport errors and 5xx
//   - WSClient: a single WebSocket with id-matched request/response frames
//   - profilestore.Store: the in-process backend used by the server
//
// Mutations return (true, nil) when applied and (false, nil) when the service
// declined. Errors are *PanelError values:
//
//	ok, err := client.UpdateDeviceOverride(ctx, "1269454", true)
//	switch {
//	case err != nil:
//	    fmt.Println(panelconfig.GetShortErrorMessage(err))
//	case !ok:
//	    fmt.Println("rejected")
//	}
package panelconfig
