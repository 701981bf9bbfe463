// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*Package backend is the configuration driven resource API layer.

A backend is created from a JSON configuration which maps resource keys
to named handler families. At boot the backend validates the
configuration, resolves every entry through the handler registry and
binds the resulting operations onto a gorilla/mux router. Malformed
configuration entries are skipped with a logged diagnostic; a route
collision aborts boot.

Every operation responds with the uniform envelope

	{"success": bool, "message": string, "data": ...}

and requires a bearer token unless the handler family declares the
operation public.
*/
package backend
