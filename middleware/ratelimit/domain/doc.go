// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// O centro é o estado por chave: uma Cell guarda um State (ausente ou um Nanos)
// e só muda via MeasureAndReplace. CellMap descreve o mapa concorrente que guarda
// as Cells; StateStore/ShrinkableStore são o que o limiter enxerga.
//
// Este pacote não depende de net/http nem de implementações concretas.
package domain
