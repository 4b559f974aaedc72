// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Aqui ficam o contrato de admissão (Limiter), as capacidades opcionais
// (QuotaReporter, ClientResetter) e os erros de configuração/argumento.
package domain
