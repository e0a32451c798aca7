// Package lightning sends Lightning Network micropayments to Lightning
// addresses through interchangeable payment providers.
//
// Two providers are implemented: LNBits (resolves the address to an LNURL-pay
// invoice and pays it through a wallet's payments API) and ZBD (a single
// send-to-address call). The engine treats both as the same capability.
package lightning
