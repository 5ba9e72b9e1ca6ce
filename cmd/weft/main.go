// Command weft runs mermaid-defined workflows from a project directory.
package main

func main() {
	Execute()
}
