// Package repository define los tipos de dominio y las interfaces de
// persistencia de fleetsign. Los drivers concretos viven en internal/store
// (pg, memory); los servicios dependen solo de estas interfaces.
package repository
