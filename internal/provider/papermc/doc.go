// Package papermc implements providers for projects published through the PaperMC v2 API
// (paper, folia, velocity, waterfall, travertine).
package papermc
