// offline-agent is the Daily Tracker offline caching and push-notification
// sidecar.
package main

import "github.com/dailytracker/offline-agent/cmd"

func main() {
	cmd.Execute()
}
