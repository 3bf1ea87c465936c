// Vigil - Multi-tenant Cloud Security Auditor
// Collect. Check. Report.
package main

func main() {
	Execute()
}
