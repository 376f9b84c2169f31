// Command pi hosts untrusted JavaScript extensions inside a
// capability-gated runtime.
package main

func main() {
	Execute()
}
