// Command bookstore runs the traced bookstore service and a traced client
// for it.
package main

import (
	"os"

	"k8s.io/klog/v2"
)

func main() {
	defer klog.Flush()
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
