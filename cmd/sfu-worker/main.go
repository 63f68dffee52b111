// Command sfu-worker is the process entrypoint: one worker owns one
// Router and speaks the control-plane protocol over stdio or amqp.
package main

import (
	"os"

	"sfuworker/internal/app"
)

func main() {
	os.Exit(app.Run())
}
