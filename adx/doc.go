// Package adx defines the exchange's native bid request and response wire
// format. These are the structures the screening engine inspects and prunes;
// transport and auction logic live elsewhere.
package adx
