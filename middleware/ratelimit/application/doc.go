// Package application contém os casos de uso de rate limit e limite de concorrência.
//
// Depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(key, endpoint) retorna uma Decision (allow/deny + retry-after)
// ou o erro do limiter quando a chave é inválida.
package application
