package webpay

import "github.com/PeterH4ck/SKYN3T-Control--sub000/provider"

// Register Webpay adapter with the default registry
func init() {
	provider.Register("webpay", NewProvider)
}
