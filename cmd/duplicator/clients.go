package main

import (
	"duplicator/internal/gql"
)

// sourceClient builds a request-layer client against the source tenant
// named in the loaded config.
func sourceClient() *gql.Client {
	return gql.New(cfg.Source.ShopDomain, cfg.Source.AdminToken, cfg.APIVersion, cfg.RequestTimeout())
}

// destClient builds a request-layer client against the destination tenant.
func destClient() *gql.Client {
	return gql.New(cfg.Dest.ShopDomain, cfg.Dest.AdminToken, cfg.APIVersion, cfg.RequestTimeout())
}
