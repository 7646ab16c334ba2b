// Package tui implements the interactive configuration panel built with
// Bubble Tea.
//
// # Screens
//
//   - Discovery: lists configuration services announced over mDNS and
//     accepts a URL typed by hand
//   - Panel: the three tabs (entity properties, device overrides, all
//     devices) driven by a controller.Controller
//
// AppModel routes messages to the active screen. When a service URL is
// already known the application starts on the panel directly.
//
// # Panel keys
//
//	D / C          switch to the default / custom profile
//	r              reload the profile files on the service
//	tab, 1 2 3     change tab
//	space, enter   toggle the flag under the cursor
//	x              remove the device override under the cursor
//	/              search the current device tab
//	esc            dismiss the error box
//	?              help
//	q              quit
//
// Cards of devices without an override are shown but cannot be toggled;
// use "hubcfg set-override" to pin a device first.
//
// # Styling
//
// Colors come from package ui so the panel matches the plain CLI output.
// Every screen is wrapped with RenderApplicationContainer, which draws the
// header, the footer with context help and the outer border.
//
// The package registers the panel card type in the cards registry from an
// init function.
package tui
