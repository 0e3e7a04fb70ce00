package sqlinline

const QNextCounterValue = `--sql 5b8c2f16-4e7a-4d93-a0b1-6c3e9f2d7a48
insert into image_counters (counter_name, current_value, created_at, updated_at)
values ($1::text, 1, now(), now())
on conflict (counter_name) do update set
    current_value = image_counters.current_value + 1,
    updated_at = now()
returning current_value;
`

const QSeedCounter = `--sql 9d4e1a73-8c2b-4f65-b7e0-1a9f3c5d2e86
insert into image_counters (counter_name, current_value, created_at, updated_at)
values ($1::text, $2::bigint, now(), now())
on conflict (counter_name) do update set
    current_value = greatest(image_counters.current_value, excluded.current_value),
    updated_at = now()
returning current_value;
`
