package mercadopago

import "github.com/PeterH4ck/SKYN3T-Control--sub000/provider"

// Register Mercado Pago adapter with the default registry
func init() {
	provider.Register("mercadopago", NewProvider)
}
