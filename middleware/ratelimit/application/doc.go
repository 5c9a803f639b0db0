// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(key) aplica GCRA sobre o estado da chave no store e
// retorna uma Decision (allow/deny + retry-after); Janitor faz a retenção
// periódica desse estado.
package application
