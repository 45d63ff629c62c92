package khipu

import "github.com/PeterH4ck/SKYN3T-Control--sub000/provider"

// Register Khipu adapter with the default registry
func init() {
	provider.Register("khipu", NewProvider)
}
